package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ReviewerHeader carries the opaque identity of the person reviewing staged
// records. It is recorded as given and never verified.
const ReviewerHeader = "X-Reviewer"

const reviewerKey contextKey = "reviewer"

const maxReviewerLength = 128

// Reviewer stores the X-Reviewer header value in the request context.
func Reviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reviewer := strings.TrimSpace(r.Header.Get(ReviewerHeader))
		if len(reviewer) > maxReviewerLength {
			reviewer = reviewer[:maxReviewerLength]
		}
		if reviewer != "" {
			r = r.WithContext(context.WithValue(r.Context(), reviewerKey, reviewer))
		}
		next.ServeHTTP(w, r)
	})
}

// ReviewerFromContext returns the reviewer identity, or "" when none was sent.
func ReviewerFromContext(ctx context.Context) string {
	reviewer, _ := ctx.Value(reviewerKey).(string)
	return reviewer
}
