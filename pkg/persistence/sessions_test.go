package persistence

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
)

var _ = Describe("SessionRepository", func() {
	var (
		repo *SessionRepository
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		db = sqlx.NewDb(rawDB, "sqlmock")
		mock = m
		repo = NewSessionRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	Describe("Create", func() {
		It("rejects an invalid status", func() {
			s := domain.NewSession("proj", 1, 100)
			s.Status = "bogus"
			Expect(repo.Create(ctx, s)).To(HaveOccurred())
		})

		It("rejects a negative wave number", func() {
			s := domain.NewSession("proj", -1, 100)
			Expect(repo.Create(ctx, s)).To(HaveOccurred())
		})

		It("inserts a valid session", func() {
			s := domain.NewSession("proj", 1, 100)
			mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(repo.Create(ctx, s)).To(Succeed())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("Update", func() {
		It("rejects a session whose invariant is violated", func() {
			s := domain.NewSession("proj", 1, 100)
			s.Status = domain.SessionInProgress
			s.StoryCount = 2
			s.StoriesCompleted = 2
			s.StoriesFailed = 1

			Expect(repo.Update(ctx, s)).To(HaveOccurred())
		})
	})
})
