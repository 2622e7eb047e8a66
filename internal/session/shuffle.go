package session

import (
	"math/rand/v2"

	"github.com/examina/examina-backend/internal/model"
)

// ShufflePaper returns a fresh Fisher–Yates permutation of the student-facing
// questions. Every paper load gets a new permutation; answers key off stable
// question ids, so a reload before submission may legitimately reorder the
// paper without losing progress.
func ShufflePaper(questions []model.StudentFacingQuestion, rng *rand.Rand) []model.StudentFacingQuestion {
	out := make([]model.StudentFacingQuestion, len(questions))
	copy(out, questions)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// NewPaperRNG seeds a generator freshly for one paper load.
func NewPaperRNG() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
