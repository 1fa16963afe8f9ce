package view

import (
	"html/template"
	"io"
	"strings"
)

// Page is everything the HTML screen needs besides the layout itself.
type Page struct {
	Layout

	Heading        string
	Subtext        string
	Background     string
	PreviewURL     string
	RefreshSeconds int
}

// NewPage wraps a layout with the default texts.
func NewPage(l Layout) Page {
	return Page{
		Layout:  l,
		Heading: Heading,
		Subtext: Subtext,
	}
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"contactURL": contactURL,
	"labels": func() map[string]string {
		return map[string]string{
			"camera": CameraLabel,
			"upload": UploadLabel,
			"stop":   StopLabel,
			"again":  ScanAgainLabel,
		}
	},
}).Parse(pageHTML))

// RenderHTML writes the scanner page.
func RenderHTML(w io.Writer, p Page) error {
	return pageTemplate.Execute(w, p)
}

// contactURL lets tel: links through the template URL filter, which only
// trusts http, https and mailto.
func contactURL(href string) template.URL {
	if strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "mailto:") {
		return template.URL(href)
	}
	return ""
}

const pageHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  {{if .RefreshSeconds}}<meta http-equiv="refresh" content="{{.RefreshSeconds}}"/>{{end}}
  <title>{{.Heading}}</title>
  <style>
    body { font-family: sans-serif; margin: 0; min-height: 100vh; background: #111; color: #fff; text-align: center; }
    main { padding: 24px; }
    h1 { font-size: 2.5em; margin-bottom: 16px; }
    .sub { color: #ccc; max-width: 40em; margin: 0 auto 24px; }
    .actions { display: flex; gap: 16px; justify-content: center; flex-wrap: wrap; }
    .btn { padding: 16px 24px; border: 0; border-radius: 12px; color: #fff; font-size: 1.1em; cursor: pointer; }
    .camera { background: #2563eb; }
    .upload { background: #7c3aed; }
    .stop { background: #555; }
    .err { color: #f87171; margin: 16px 0; }
    #reader { background: #000; margin: 16px auto; max-width: 480px; min-height: 8px; }
    #reader img { width: 100%; }
    .card { position: relative; overflow: hidden; max-width: 24em; margin: 64px auto 0; padding: 160px 32px 32px; border-radius: 16px; background: #222 center / cover no-repeat; }
    .card .shade { position: absolute; inset: 0; background: linear-gradient(to top, #111, rgba(17,17,17,0.4)); }
    .card .avatar { position: absolute; top: 20px; left: 50%; transform: translateX(-50%); width: 128px; height: 128px; border-radius: 50%; border: 4px solid #fff; object-fit: cover; }
    .card .body { position: relative; }
    .card h3 { font-size: 1.8em; margin: 0 0 8px; }
    .card a, .card .dept { color: #ccc; display: block; margin-top: 6px; }
  </style>
</head>
<body>
<main>
  {{if .ShowHeading}}
  <h1>{{.Heading}}</h1>
  <p class="sub">{{.Subtext}}</p>
  {{end}}

  {{if .Error}}<p class="err" role="alert">{{.Error}}</p>{{end}}

  <div class="actions">
    {{if .ShowCameraButton}}
    <form method="post" action="/camera"><button class="btn camera" type="submit">{{index labels "camera"}}</button></form>
    {{end}}
    {{if .ShowStop}}
    <form method="post" action="/stop"><button class="btn stop" type="submit">{{index labels "stop"}}</button></form>
    {{end}}
    {{if .ShowUpload}}
    <form method="post" action="/upload" enctype="multipart/form-data">
      <label class="btn upload">{{index labels "upload"}}
        <input type="file" name="image" accept="image/*" hidden onchange="this.form.submit()"/>
      </label>
      <noscript><button type="submit">Send</button></noscript>
    </form>
    {{end}}
  </div>

  {{if .ShowPreview}}
  <div id="reader">{{if and .LivePreview .PreviewURL}}<img src="{{.PreviewURL}}" alt="Camera preview"/>{{end}}</div>
  {{end}}

  {{with .Card}}
  <article class="card"{{if $.Background}} style="background-image: url('{{$.Background}}')"{{end}}>
    <div class="shade"></div>
    {{if .ImageURL}}<img class="avatar" src="{{.ImageURL}}" alt="Profile Picture"/>{{end}}
    <div class="body">
      {{if .Name}}<h3>{{.Name}}</h3>{{end}}
      {{if .Contact}}<a class="contact" href="{{contactURL .ContactHref}}">{{.Contact}}</a>{{end}}
      {{if .Dept}}<span class="dept">{{.Dept}}</span>{{end}}
    </div>
  </article>
  {{end}}

  {{if .ShowScanAgain}}
  <form method="post" action="/again" style="margin-top: 24px"><button class="btn camera" type="submit">{{index labels "again"}}</button></form>
  {{end}}
</main>
</body>
</html>
`
