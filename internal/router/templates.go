package router

import "html/template"

// The pages are deliberately minimal: rendering is not this service's
// concern beyond carrying the CSRF token, the flash link and form errors.

const registerPage = `<!DOCTYPE html>
<html>
<head><title>Register</title></head>
<body>
<h1>Register</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/register">
	<input type="hidden" name="csrf" value="{{.CSRFToken}}">
	<label>Username <input type="text" name="username" required></label>
	<label>Password <input type="password" name="password" required></label>
	<button type="submit">Register</button>
</form>
<p><a href="/login">Log in</a></p>
</body>
</html>
`

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Login</title></head>
<body>
<h1>Login</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
	<input type="hidden" name="csrf" value="{{.CSRFToken}}">
	<label>Username <input type="text" name="username" required></label>
	<label>Password <input type="password" name="password" required></label>
	<button type="submit">Log in</button>
</form>
<p><a href="/register">Register</a></p>
</body>
</html>
`

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Shorten a URL</title></head>
<body>
<h1>Hello, {{.Username}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Link}}<p>Your short link: <a href="{{.Link}}">{{.Link}}</a></p>{{end}}
<form method="post" action="/">
	<input type="hidden" name="csrf" value="{{.CSRFToken}}">
	<label>URL <input type="text" name="url" required></label>
	<button type="submit">Shorten</button>
</form>
<p><a href="/my-urls">My URLs</a></p>
<form method="post" action="/logout">
	<input type="hidden" name="csrf" value="{{.CSRFToken}}">
	<button type="submit">Log out</button>
</form>
</body>
</html>
`

const myURLsPage = `<!DOCTYPE html>
<html>
<head><title>My URLs</title></head>
<body>
<h1>My URLs</h1>
<table>
{{range .URLs}}
	<tr>
		<td><a href="{{.ShortURL}}">{{.ShortURL}}</a></td>
		<td>{{.OriginalURL}}</td>
		<td>
			<form method="post" action="/{{.Slug}}">
				<input type="hidden" name="csrf" value="{{$.CSRFToken}}">
				<button type="submit">Delete</button>
			</form>
		</td>
	</tr>
{{end}}
</table>
<p><a href="/">Shorten another</a></p>
</body>
</html>
`

var templates = func() *template.Template {
	root := template.New("pages")
	template.Must(root.New("register").Parse(registerPage))
	template.Must(root.New("login").Parse(loginPage))
	template.Must(root.New("index").Parse(indexPage))
	template.Must(root.New("myurls").Parse(myURLsPage))
	return root
}()
