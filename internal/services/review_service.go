package services

import (
	"context"
	"fmt"

	"github.com/ruralpay/wallet/internal/audit"
	"github.com/ruralpay/wallet/internal/ledger"
	"github.com/ruralpay/wallet/internal/models"
	log "github.com/sirupsen/logrus"
)

// ReviewService lets an administrator annotate flagged transactions.
// It never changes balances.
type ReviewService struct {
	store ledger.Store
	audit *audit.Logger
}

func NewReviewService(store ledger.Store, auditLogger *audit.Logger) *ReviewService {
	if auditLogger == nil {
		auditLogger = audit.NewLogger(nil)
	}
	return &ReviewService{store: store, audit: auditLogger}
}

// Review sets the review status and comment of a flagged transaction.
// A transaction that was already reviewed may be reviewed again.
func (s *ReviewService) Review(ctx context.Context, reviewerID, txnID string, status models.ReviewStatus, comment string) (*models.Transaction, error) {
	if status != models.ReviewCleared && status != models.ReviewRejected {
		return nil, fmt.Errorf("%w: must be 'cleared' or 'rejected'", ErrInvalidStatus)
	}

	txn, err := s.store.UpdateReview(ctx, txnID, status, comment)
	if err != nil {
		err = translate(err)
		log.Printf("[ADMIN] Review of txn %s by %s failed: %v", txnID, reviewerID, err)
		return nil, err
	}

	log.Printf("[ADMIN] Transaction %s marked as %s by %s", txnID, status, reviewerID)
	s.audit.LogReview(txnID, reviewerID, string(status), comment)
	return txn, nil
}
