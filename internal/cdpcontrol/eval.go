package cdpcontrol

import "encoding/json"

const styleElementID = "quickpeek-style"

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// wrapValue turns a function body into an expression that reports the body's
// return value through the evaluation envelope.
func wrapValue(body string) string {
	return buildIIFE(false, `var __value = (function(){
`+body+`
})();
return JSON.stringify({ok:true,data:__value === undefined ? null : __value});`)
}

// styleScript installs css in a single style element, replacing what an
// earlier call installed.
func styleScript(css string) string {
	return `var el = document.getElementById(` + jsString(styleElementID) + `);
if (!el) {
  el = document.createElement("style");
  el.id = ` + jsString(styleElementID) + `;
  (document.head || document.documentElement).appendChild(el);
}
el.textContent = ` + jsString(css) + `;
return true;`
}
