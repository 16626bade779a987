package httpserver

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

func BenchmarkHandleUpsertRating(b *testing.B) {
	srv := buildTestServer(b)
	seedMedia(b, srv, domain.Media{Kind: domain.KindMovie, ID: 1, Title: "Benchmark Movie"})
	token := register(b, srv, "bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		body := fmt.Sprintf(`{"movieId":1,"score":%.1f}`, float64(i%21)/2)
		rec := do(b, srv, http.MethodPut, "/ratings", body, token)
		if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
