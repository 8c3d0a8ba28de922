package webfetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	doc := `<!doctype html>
<html>
<head><title>Our Team | Food Bank of Iowa</title><style>body{color:red}</style></head>
<body>
  <nav><a href="/">Home</a><a href="/about">About</a></nav>
  <h1>Leadership</h1>
  <ul>
    <li><strong>Jane Doe</strong>, Executive Director <a href="mailto:jane@fbi.org">Email</a></li>
    <li>John Roe, CFO <a href="tel:+15155550100">Call</a></li>
  </ul>
  <script>alert("x")</script>
  <p>Questions?   Call   us.</p>
</body>
</html>`

	title, text, err := HTMLToText(doc)
	require.NoError(t, err)
	assert.Equal(t, "Our Team | Food Bank of Iowa", title)

	assert.Contains(t, text, "## Leadership")
	assert.Contains(t, text, "- Jane Doe , Executive Director Email (mailto:jane@fbi.org)")
	assert.Contains(t, text, "(tel:+15155550100)")
	assert.Contains(t, text, "Questions? Call us.")

	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "Home")
	assert.NotContains(t, text, "\n\n\n")
}

func TestHTMLToText_Empty(t *testing.T) {
	title, text, err := HTMLToText("")
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.Empty(t, text)
}
