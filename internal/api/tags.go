package api

import (
	"context"
	"net/http"

	"github.com/seantiz/stbuild/internal/model"
)

// runTags records which run a request touched. Middleware allocates it and
// handlers fill it in, so logging and metrics can label by task.
type runTags struct {
	runID string
	task  string
}

type tagsKey struct{}

func tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), tagsKey{}, &runTags{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tagsFrom(ctx context.Context) *runTags {
	t, _ := ctx.Value(tagsKey{}).(*runTags)
	return t
}

// tagRun marks the request as acting on run.
func tagRun(r *http.Request, run *model.Run) {
	if t := tagsFrom(r.Context()); t != nil && run != nil {
		t.runID, t.task = run.ID, run.Task
	}
}

// requestTask is the task label for request metrics.
func requestTask(r *http.Request) string {
	if t := tagsFrom(r.Context()); t != nil && t.task != "" {
		return t.task
	}
	return "none"
}
