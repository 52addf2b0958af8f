// Package templating renders template bodies against a
// settings context. A Backend turns a body into text; a
// Registry holds the helpers a single render may call.
//
// Two backends are provided. Pongo2Backend is a full
// Django-syntax engine (flosch/pongo2) in which helpers are
// callables: {{ base64_decode(settings.motd) }}. FastBackend
// is a substitution engine built on valyala/fasttemplate
// where each {{ ... }} tag is either a dotted settings path
// or a helper name followed by its arguments.
//
// Every render builds its own engine state, so one Backend
// value can serve concurrent renders.
package templating
