package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/morezero/wallet-bridge/pkg/db"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
	"github.com/morezero/wallet-bridge/pkg/relay"
)

// callLister reads the call journal. *db.Repository satisfies it.
type callLister interface {
	RecentCalls(ctx context.Context, params db.RecentCallsParams) ([]db.CallEntry, error)
}

// healthChecks holds the individual dependency checks.
type healthChecks struct {
	Comms   bool  `json:"comms"`
	Surface bool  `json:"surface"`
	Journal *bool `json:"journal,omitempty"`
}

// healthOutput is the /health response.
type healthOutput struct {
	Status        string       `json:"status"`
	Checks        healthChecks `json:"checks"`
	Gate          string       `json:"gate"`
	Pending       int          `json:"pending"`
	WalletVersion string       `json:"walletVersion,omitempty"`
	Timestamp     string       `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *healthOutput {
	st := s.bridge.Status()
	h := &healthOutput{
		Gate:          st.Gate,
		Pending:       st.Pending,
		WalletVersion: s.bridge.WalletVersion(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks: healthChecks{
			Comms:   s.commsConnected != nil && s.commsConnected(),
			Surface: s.surfaceAttached != nil && s.surfaceAttached(),
		},
	}
	healthy := h.Checks.Comms && h.Checks.Surface
	if s.pingDB != nil {
		ok := s.pingDB(ctx) == nil
		h.Checks.Journal = &ok
		healthy = healthy && ok
	}
	h.Status = "healthy"
	if !healthy {
		h.Status = "unhealthy"
	}
	return h
}

// newMux builds the HTTP routes.
func (s *Server) newMux() *http.ServeMux {
	healthTimeout := s.cfg.HealthCheckTimeout
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/operation/", s.handleOperationDetail())
	mux.HandleFunc("/openapi.json", s.handleOpenAPI())
	mux.HandleFunc("/docs", s.handleDocs())
	mux.HandleFunc("/calls", s.handleCalls())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		h := s.health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// homePageTemplate is the HTML for the bridge home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Wallet Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Wallet Bridge</h1>
  <p class="meta">Originator {{.Status.Originator}}. <a href="/docs">Relay API</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>COMMS: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    <p>Page: {{if .Health.Checks.Surface}}<span class="stat">Attached</span>{{else}}<span class="error">Not attached</span>{{end}}</p>
    <p>Authentication: <span class="stat">{{.Status.Gate}}</span>{{if .Health.WalletVersion}} (wallet {{.Health.WalletVersion}}){{end}}</p>
    <p>Host content visible: {{.Status.Visible}}. Pending calls: <span class="stat">{{.Status.Pending}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Operations</h2>
    <table>
      <thead>
        <tr><th>Operation</th><th>Wallet call</th><th>Parameters</th><th>Result</th><th>Deadline</th></tr>
      </thead>
      <tbody>
        {{range .Operations}}
        <tr>
          <td><a href="/operation/{{.Name}}">{{.Name}}</a></td>
          <td>{{.RemoteName}}</td>
          <td>{{len .Params}}</td>
          <td>{{resultKind .}}</td>
          <td>{{if .NoDeadline}}none{{else}}default{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>

  {{if .Journal}}
  <section>
    <h2>Recent calls</h2>
    {{if .CallsError}}
    <p class="error">Could not load the call journal: {{.CallsError}}</p>
    {{else if not .Calls}}
    <p>No calls journaled yet.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Started</th><th>Operation</th><th>Outcome</th><th>Duration (ms)</th></tr>
      </thead>
      <tbody>
        {{range .Calls}}
        <tr><td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td><td>{{.Operation}}</td><td>{{.Outcome}}</td><td>{{printf "%.1f" .DurationMs}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
  {{end}}
</body>
</html>
`

// operationDetailPageTemplate is the HTML for a single operation.
const operationDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} – Wallet Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to bridge</a></p>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}

  <section>
    <h2>Details</h2>
    <table>
      <tr><th>Wallet call</th><td>{{.RemoteName}}</td></tr>
      <tr><th>Result</th><td>{{resultKind .}}</td></tr>
      <tr><th>Deadline</th><td>{{if .NoDeadline}}none{{else}}default call timeout{{end}}</td></tr>
    </table>
  </section>

  <section>
    <h2>Parameters</h2>
    {{if not .Params}}
    <p>No parameters.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Wire key</th><th>Kind</th><th>Required</th><th>Default</th><th>Encoding</th></tr>
      </thead>
      <tbody>
        {{range .Params}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.WireName}}</td>
          <td>{{paramKind .Kind}}</td>
          <td>{{.Required}}</td>
          <td>{{if .Default}}{{.Default.String}}{{end}}</td>
          <td>{{.Encoding}}{{if .OneOf}} one of {{range .OneOf}}{{.}} {{end}}{{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

var pageFuncs = template.FuncMap{
	"resultKind": func(op dispatcher.Operation) string {
		if op.Result == "" {
			return string(dispatcher.ResultBody)
		}
		return string(op.Result)
	},
	"paramKind": func(k dispatcher.ParamKind) string {
		if k == "" {
			return string(dispatcher.KindAny)
		}
		return string(k)
	},
}

// homeData is the data passed to the home page template.
type homeData struct {
	Status     relay.Status
	Health     *healthOutput
	Operations []dispatcher.Operation
	Journal    bool
	Calls      []db.CallEntry
	CallsError string
}

// handleHome returns an HTTP handler for the bridge home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(pageFuncs).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			Status:     s.bridge.Status(),
			Health:     s.health(ctx),
			Operations: s.bridge.Dispatcher().Operations(),
			Journal:    s.journal != nil,
		}
		if s.journal != nil {
			calls, err := s.journal.RecentCalls(ctx, db.RecentCallsParams{Limit: 20})
			if err != nil {
				data.CallsError = err.Error()
			} else {
				data.Calls = calls
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleOperationDetail returns an HTTP handler for the operation detail page.
func (s *Server) handleOperationDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("operationDetail").Funcs(pageFuncs).Parse(operationDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/operation/")
		if name == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		op, ok := s.bridge.Dispatcher().Operation(name)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, op); err != nil {
			slog.Error(fmt.Sprintf("%s - operation detail template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleCalls serves recent journal entries as JSON.
func (s *Server) handleCalls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.journal == nil {
			http.Error(w, "call journal disabled", http.StatusNotFound)
			return
		}
		params := db.RecentCallsParams{Operation: r.URL.Query().Get("operation")}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			params.Limit = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		calls, err := s.journal.RecentCalls(ctx, params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if calls == nil {
			calls = []db.CallEntry{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(calls)
	}
}

// openAPI3 types for generating the relay spec from operation declarations.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// buildOpenAPISpec describes each operation as a relay method (one path per method).
func buildOpenAPISpec(ops []dispatcher.Operation, subject string) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem, len(ops))
	for _, op := range ops {
		paths["/"+op.Name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     op.Name,
				Description: op.Description,
				OperationID: op.Name,
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: paramsSchema(op.Params)},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Success",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: resultSchema(op.Result)},
						},
					},
				},
			},
		}
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       "Wallet Bridge",
			Description: fmt.Sprintf("Request/reply methods served on %s. Each path is a request method; the body is its params.", subject),
			Version:     "1.0.0",
		},
		Paths: paths,
	}
}

func paramsSchema(params []dispatcher.Param) map[string]interface{} {
	props := make(map[string]interface{}, len(params))
	var required []string
	for _, p := range params {
		prop := kindSchema(p.Kind)
		if p.Default != nil {
			prop["default"] = *p.Default
		}
		if len(p.OneOf) > 0 {
			prop["enum"] = p.OneOf
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func kindSchema(k dispatcher.ParamKind) map[string]interface{} {
	switch k {
	case dispatcher.KindString:
		return map[string]interface{}{"type": "string"}
	case dispatcher.KindBool:
		return map[string]interface{}{"type": "boolean"}
	case dispatcher.KindNumber:
		return map[string]interface{}{"type": "number"}
	case dispatcher.KindInteger:
		return map[string]interface{}{"type": "integer"}
	case dispatcher.KindObject:
		return map[string]interface{}{"type": "object"}
	case dispatcher.KindArray:
		return map[string]interface{}{"type": "array"}
	}
	return map[string]interface{}{}
}

func resultSchema(k dispatcher.ResultKind) map[string]interface{} {
	switch k {
	case dispatcher.ResultString:
		return map[string]interface{}{"type": "string"}
	case dispatcher.ResultBool, dispatcher.ResultLooseBool:
		return map[string]interface{}{"type": "boolean"}
	case dispatcher.ResultBytes:
		return map[string]interface{}{"type": "string", "format": "byte"}
	}
	return map[string]interface{}{}
}

func (s *Server) handleOpenAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := buildOpenAPISpec(s.bridge.Dispatcher().Operations(), s.cfg.RelaySubject())
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=60")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			slog.Error(fmt.Sprintf("%s - openapi json encode: %v", logPrefix, err))
		}
	}
}

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – Wallet Bridge</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

func (s *Server) handleDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		tmpl.Execute(w, map[string]string{"SpecURL": scheme + "://" + r.Host + "/openapi.json"})
	}
}
