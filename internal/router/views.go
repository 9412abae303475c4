package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/service/session"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

// Gate is the access requirement of a view.
type Gate string

const (
	GateNone          Gate = "none"
	GateAuthenticated Gate = "authenticated"
	GateDoctor        Gate = "doctor"
)

// Decision is the outcome of resolving a view for an identity.
type Decision string

const (
	DecisionAllow             Decision = "allow"
	DecisionRedirectLogin     Decision = "redirect_login"
	DecisionRedirectDashboard Decision = "redirect_dashboard"
)

type viewRoute struct {
	name    string
	pattern string
	gate    Gate
}

// Table order matters: /patients/add must win over /patients/:id.
var viewRoutes = []viewRoute{
	{"home", "/", GateNone},
	{"login", middleware.PathLogin, GateNone},
	{"register", "/register", GateNone},
	{"dashboard", middleware.PathDashboard, GateAuthenticated},
	{"patients", "/patients", GateDoctor},
	{"add-patient", "/patients/add", GateDoctor},
	{"patient-detail", "/patients/:id", GateDoctor},
	{"upload", "/upload", GateDoctor},
	{"scan-result-detail", "/results/:id", GateAuthenticated},
}

const notFoundView = "not-found"

// View is a resolved client view.
type View struct {
	Name     string            `json:"name"`
	Pattern  string            `json:"pattern"`
	Gate     Gate              `json:"gate"`
	Params   map[string]string `json:"params,omitempty"`
	Decision Decision          `json:"decision"`
	Redirect string            `json:"redirect,omitempty"`
}

// ResolveView matches path against the view table and decides whether
// identity may see it. Unknown paths resolve to the not-found view, which
// is always allowed.
func ResolveView(path string, identity *model.Identity) View {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	view := View{Name: notFoundView, Pattern: "*", Gate: GateNone}
	for _, r := range viewRoutes {
		if params, ok := matchPattern(r.pattern, path); ok {
			view = View{Name: r.name, Pattern: r.pattern, Gate: r.gate, Params: params}
			break
		}
	}

	switch {
	case view.Gate == GateNone:
		view.Decision = DecisionAllow
	case identity == nil:
		view.Decision = DecisionRedirectLogin
		view.Redirect = middleware.PathLogin
	case view.Gate == GateDoctor && !identity.IsDoctor():
		view.Decision = DecisionRedirectDashboard
		view.Redirect = middleware.PathDashboard
	default:
		view.Decision = DecisionAllow
	}
	return view
}

func matchPattern(pattern, path string) (map[string]string, bool) {
	want := splitPath(pattern)
	got := splitPath(path)
	if len(want) != len(got) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range want {
		if strings.HasPrefix(seg, ":") {
			if got[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

type viewsHandler struct {
	sessions session.Store
}

func (h *viewsHandler) resolve(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		httputil.RespondWithError(c, errors.BadRequest("path is required", nil))
		return
	}

	var identity *model.Identity
	if current, ok := h.sessions.Current(); ok {
		identity = current
	}
	httputil.RespondWithSuccess(c, http.StatusOK, ResolveView(path, identity))
}
