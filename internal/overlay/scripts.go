package overlay

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	rootID    = "quickpeek-overlay"
	loadTitle = "Loading.."
)

const panelCSS = `
#quickpeek-overlay { position: fixed; inset: 0; z-index: 2147483647; font: 13px/1.4 system-ui, sans-serif; }
#quickpeek-overlay .qp-backdrop { position: absolute; inset: 0; background: rgba(0,0,0,.35); }
#quickpeek-overlay .qp-panel { position: absolute; top: 4vh; right: 2vw; width: min(46vw, 720px); max-height: 92vh;
  overflow-y: auto; background: #fff; color: #111; border-radius: 6px; box-shadow: 0 8px 32px rgba(0,0,0,.4); cursor: pointer; }
#quickpeek-overlay .qp-title { position: sticky; top: 0; padding: 8px 12px; background: #f3f3f3; border-bottom: 1px solid #ddd;
  white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
#quickpeek-overlay .qp-frames img { display: block; width: 100%; }
`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func with(s string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(s)
}

// openScript replaces any panel left on the page and wires its controls to
// the page binding. Clicking the panel promotes, Escape or Q discards and a
// click outside the panel dismisses.
func openScript(binding, hidden string) string {
	return with(`var prev = document.getElementById(ROOT_ID);
if (prev) { prev.remove(); }
if (window.__quickpeekKeys) { window.removeEventListener("keydown", window.__quickpeekKeys, true); }
var root = document.createElement("div");
root.id = ROOT_ID;
root.dataset.tab = TAB;
root.innerHTML = '<style>' + CSS + '</style><div class="qp-backdrop"></div>' +
  '<div class="qp-panel"><div class="qp-title"></div><div class="qp-frames"></div></div>';
root.querySelector(".qp-title").textContent = TITLE;
(document.body || document.documentElement).appendChild(root);
var send = function(message) {
  var fn = window[BINDING];
  if (typeof fn === "function") { fn(JSON.stringify({message: message, tabId: TAB})); }
};
root.querySelector(".qp-backdrop").addEventListener("click", function() { send("dismiss-peek-overlay"); });
root.querySelector(".qp-panel").addEventListener("click", function() { send("switch-to-newly-opened-tab"); });
window.__quickpeekKeys = function(e) {
  if (e.key === "Escape" || e.key === "q" || e.key === "Q") {
    e.preventDefault();
    e.stopPropagation();
    send("close-newly-opened-tab");
  }
};
window.addEventListener("keydown", window.__quickpeekKeys, true);
return true;`,
		"ROOT_ID", jsString(rootID),
		"TAB", jsString(hidden),
		"CSS", jsString(panelCSS),
		"TITLE", jsString(loadTitle),
		"BINDING", jsString(binding),
	)
}

// Each script below returns false when the panel is gone, for example after
// the user navigated the origin tab away.

func clearScript() string {
	return with(`var root = document.getElementById(ROOT_ID);
if (!root) { return false; }
root.querySelector(".qp-frames").textContent = "";
root.querySelector(".qp-panel").scrollTop = 0;
return true;`, "ROOT_ID", jsString(rootID))
}

func titleScript(title string) string {
	return with(`var root = document.getElementById(ROOT_ID);
if (!root) { return false; }
root.querySelector(".qp-title").textContent = TITLE;
return true;`, "ROOT_ID", jsString(rootID), "TITLE", jsString(title))
}

func appendScript(src string, generation uint64, index int) string {
	return with(`var root = document.getElementById(ROOT_ID);
if (!root) { return false; }
var img = document.createElement("img");
img.src = SRC;
img.dataset.generation = GEN;
img.dataset.index = IDX;
root.querySelector(".qp-frames").appendChild(img);
return true;`,
		"ROOT_ID", jsString(rootID),
		"SRC", jsString(src),
		"GEN", jsString(strconv.FormatUint(generation, 10)),
		"IDX", jsString(strconv.Itoa(index)),
	)
}

func closeScript() string {
	return with(`var root = document.getElementById(ROOT_ID);
if (root) { root.remove(); }
if (window.__quickpeekKeys) {
  window.removeEventListener("keydown", window.__quickpeekKeys, true);
  delete window.__quickpeekKeys;
}
return true;`, "ROOT_ID", jsString(rootID))
}
