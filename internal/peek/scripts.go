package peek

import "fmt"

const zoomClass = "quickpeek-zoom"

// zoomStyle scales the page so one viewport shows more of it.
func zoomStyle(zoom float64) string {
	return fmt.Sprintf("body.%s { transform: scale(%.3f); transform-origin: 0 0; width: %.3f%%; }",
		zoomClass, zoom, 100/zoom)
}

var (
	zoomOnScript = `if (document.body) { document.body.classList.add("` + zoomClass + `"); }
return true;`

	measureScript = `var b = document.body;
var h = (b && (b.scrollHeight || b.clientHeight)) || document.documentElement.scrollHeight;
return { remaining: Math.floor(h - window.pageYOffset - window.innerHeight) };`

	scrollScript = `window.scrollTo(0, window.pageYOffset + window.innerHeight);
` + measureScript

	resetScript = `if (document.body) { document.body.classList.remove("` + zoomClass + `"); }
window.scrollTo(0, 0);
return true;`
)

type foldMetrics struct {
	Remaining int `json:"remaining"`
}
