package webd

import (
	ghandlers "github.com/gorilla/handlers"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
)

// tokenAuthenticationMiddleware is a middleware that checks for a valid token in the X-Velofuse-Token header.
// If the token is not valid, it returns a 403 Forbidden.
// If no token is set, it allows all requests.
func tokenAuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validToken := os.Getenv("VELOFUSE_TOKEN")
		if validToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Velofuse-Token")
		if token == "" {
			// Header token not set. Check the api_token query param.
			token = r.URL.Query().Get("api_token")
		}

		if token != validToken {
			slog.Warn("Invalid token", "method", r.Method, "url", r.URL,
				"remote-addr", r.RemoteAddr, "user-agent", r.UserAgent())
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func permissiveCorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Add("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, X-Velofuse-Token")
		next.ServeHTTP(w, r)
	})
}

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// remoteHost is the request's remote host, followed by any X-Forwarded-For hops.
func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	for _, v := range req.Header.Values("X-Forwarded-For") {
		host += "->" + v
	}
	return host
}

// loggingMiddleware logs one structured line per request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ghandlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p ghandlers.LogFormatterParams) {
			uri := p.Request.RequestURI
			if uri == "" {
				uri = p.URL.RequestURI()
			}
			logger.Info("HTTP",
				"remote", remoteHost(p.Request),
				"method", p.Request.Method,
				"uri", uri,
				"proto", p.Request.Proto,
				"status", p.StatusCode,
				"size", p.Size,
				"ts", p.TimeStamp)
		})
	}
}
