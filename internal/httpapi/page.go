package httpapi

import "html/template"

// indexPage is the static chat page served at the root path. It posts to the
// REST webhook from the browser; no server-side state.
var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 640px; margin: 2rem auto; }
#log { border: 1px solid #ccc; min-height: 16rem; padding: .5rem; }
.bot { color: #046; }
.user { color: #333; text-align: right; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div id="log"></div>
<form id="chat">
<input id="msg" autocomplete="off" placeholder="Type a message">
<button type="submit">Send</button>
</form>
<script>
const log = document.getElementById("log");
document.getElementById("chat").addEventListener("submit", async (e) => {
  e.preventDefault();
  const input = document.getElementById("msg");
  const text = input.value.trim();
  if (!text) return;
  input.value = "";
  log.insertAdjacentHTML("beforeend", "<p class=user></p>");
  log.lastChild.textContent = text;
  const resp = await fetch("/webhooks/rest/webhook", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({sender: "web", message: text}),
  });
  if (!resp.ok) {
    log.insertAdjacentHTML("beforeend", "<p class=bot>(error)</p>");
    return;
  }
  for (const m of await resp.json()) {
    log.insertAdjacentHTML("beforeend", "<p class=bot></p>");
    log.lastChild.textContent = m.text || "";
  }
});
</script>
</body>
</html>
`))

type pageData struct {
	Title string
}
