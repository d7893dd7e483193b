package middleware

import (
	"net/http"
	"strings"
)

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{"Content-Type", "Authorization", "X-Request-Id"}, ", ")
)

// CORS 根据允许的来源列表设置跨域响应头，并直接应答预检请求。
// "*" 允许任意来源，"*.example.com" 匹配子域名。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed, wildcard := originAllowed(allowedOrigins, origin); allowed {
				h := w.Header()
				if wildcard {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowedOrigins []string, origin string) (allowed, wildcard bool) {
	if origin == "" {
		return false, false
	}
	for _, candidate := range allowedOrigins {
		switch {
		case candidate == "*":
			return true, true
		case candidate == origin:
			return true, false
		case strings.HasPrefix(candidate, "*.") && strings.HasSuffix(origin, candidate[1:]):
			return true, false
		}
	}
	return false, false
}
