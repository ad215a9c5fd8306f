package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets browsers on the given origins call the API. A "*" entry allows
// any origin; an empty list leaves cross-origin requests unanswered.
func CORS(origins []string) (gin.HandlerFunc, error) {
	if len(origins) == 0 {
		return func(gctx *gin.Context) { gctx.Next() }, nil
	}

	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range origins {
		if o == "*" {
			config.AllowAllOrigins = true
		}
	}

	if !config.AllowAllOrigins {
		config.AllowOrigins = origins
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cors origins %v: %w", origins, err)
	}

	return cors.New(config), nil
}
