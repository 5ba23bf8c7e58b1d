package browser

import (
	"fmt"
	"time"
)

// DefaultPoll is how often page-side events are drained.
const DefaultPoll = 100 * time.Millisecond

// installScript registers listeners that queue lifecycle events on window.
// Source changes report the page URL, which carries the platform video id.
func installScript(selector string) string {
	return fmt.Sprintf(`(() => {
  const v = document.querySelector(%q);
  if (!v || v.__flashguard) return !!v;
  v.__flashguard = true;
  window.__flashguardEvents = window.__flashguardEvents || [];
  const push = (kind) => window.__flashguardEvents.push({kind, time: v.currentTime, url: location.href});
  for (const kind of ["play", "pause", "seeking", "ended"]) v.addEventListener(kind, () => push(kind));
  v.addEventListener("loadstart", () => push("source-changed"));
  if (!v.paused) push("play");
  return true;
})()`, selector)
}

// drainScript returns and clears the queued events.
const drainScript = `(() => { const q = window.__flashguardEvents || []; window.__flashguardEvents = []; return q; })()`

// snapshotScript draws the video into a canvas no larger than the cap and
// returns it as a PNG data URL. Tainted canvases report SecurityError.
func snapshotScript(selector string, maxW, maxH int) string {
	return fmt.Sprintf(`(() => {
  const v = document.querySelector(%q);
  if (!v || !v.videoWidth) return {data: "", error: "no frame"};
  const s = Math.min(1, %d / v.videoWidth, %d / v.videoHeight);
  const c = window.__flashguardCanvas || (window.__flashguardCanvas = document.createElement("canvas"));
  c.width = Math.max(1, Math.round(v.videoWidth * s));
  c.height = Math.max(1, Math.round(v.videoHeight * s));
  try {
    c.getContext("2d").drawImage(v, 0, 0, c.width, c.height);
    return {data: c.toDataURL("image/png"), error: ""};
  } catch (e) {
    return {data: "", error: e.name || String(e)};
  }
})()`, selector, maxW, maxH)
}
