package persistence

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
)

var _ = Describe("CheckpointRepository", func() {
	var (
		repo      *CheckpointRepository
		db        *sqlx.DB
		mock      sqlmock.Sqlmock
		ctx       context.Context
		sessionID uuid.UUID
	)

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		db = sqlx.NewDb(rawDB, "sqlmock")
		mock = m
		repo = NewCheckpointRepository(db)
		ctx = context.Background()
		sessionID = uuid.New()
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	Describe("Create", func() {
		It("rejects an unknown checkpoint type", func() {
			cp := domain.NewCheckpoint(sessionID, "AUTH-001", "bogus", "x", nil)
			Expect(repo.Create(ctx, cp)).To(HaveOccurred())
		})

		It("rejects an out-of-range gate", func() {
			badGate := 99
			cp := domain.NewCheckpoint(sessionID, "AUTH-001", domain.CheckpointGate, "g", nil)
			cp.Gate = &badGate
			Expect(repo.Create(ctx, cp)).To(HaveOccurred())
		})

		It("assigns the next sequence number and inserts", func() {
			cp := domain.NewCheckpoint(sessionID, "AUTH-001", domain.CheckpointStoryStart, "start", nil)

			mock.ExpectQuery("SELECT COALESCE").
				WithArgs(sessionID).
				WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4)))
			mock.ExpectExec("INSERT INTO checkpoints").WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(repo.Create(ctx, cp)).To(Succeed())
			Expect(cp.Sequence).To(Equal(int64(4)))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("CleanupOldCheckpoints", func() {
		It("rejects a negative retention count", func() {
			Expect(repo.CleanupOldCheckpoints(ctx, sessionID, -1)).To(HaveOccurred())
		})

		It("deletes everything outside the retained window", func() {
			mock.ExpectExec("DELETE FROM checkpoints").
				WithArgs(sessionID, DefaultCheckpointRetention).
				WillReturnResult(sqlmock.NewResult(0, 7))

			Expect(repo.CleanupOldCheckpoints(ctx, sessionID, DefaultCheckpointRetention)).To(Succeed())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("LatestBySession", func() {
		It("returns not-found when the session has no checkpoints", func() {
			mock.ExpectQuery("SELECT \\* FROM checkpoints").
				WithArgs(sessionID).
				WillReturnError(sqlmock.ErrCancelled)

			_, err := repo.LatestBySession(ctx, sessionID)
			Expect(err).To(HaveOccurred())
		})
	})
})
