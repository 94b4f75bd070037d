package ethapi

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/model"
)

// MockVerifier serves canned proofs keyed by reference. Used in tests and in
// mock mode, where no chain node is available.
type MockVerifier struct {
	mu     sync.Mutex
	proofs map[string]model.PaymentProof
}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{proofs: map[string]model.PaymentProof{}}
}

func (mv *MockVerifier) AddPayment(proof model.PaymentProof) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.proofs[proof.Reference] = proof
}

func (mv *MockVerifier) VerifyPayment(ctx context.Context, reference string) (*model.PaymentProof, error) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	proof, ok := mv.proofs[reference]
	if !ok {
		return nil, errors.Errorf("tx %s is not yet mined", reference)
	}
	return &proof, nil
}
