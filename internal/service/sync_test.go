package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"article_sync/internal/domain"
	"article_sync/internal/lock"
	"article_sync/internal/service/mocks"
)

const sourceURL = "https://remote.example"

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	registry *mocks.MockSourceRegistry
	feed     *mocks.MockFeedClient
	importer *mocks.MockImporter
	locker   *mocks.MockLocker

	service *SyncService
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.registry = mocks.NewMockSourceRegistry(s.ctrl)
	s.feed = mocks.NewMockFeedClient(s.ctrl)
	s.importer = mocks.NewMockImporter(s.ctrl)
	s.locker = mocks.NewMockLocker(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewSyncService(s.registry, s.feed, s.importer, s.locker, s.logger)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) expectLock() {
	s.locker.EXPECT().TryLock(gomock.Any(), gomock.Any()).Return(func() {}, nil).AnyTimes()
}

func remoteArticles(ids ...int64) []domain.RemoteArticle {
	out := make([]domain.RemoteArticle, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RemoteArticle{ExternalID: id, Title: "title"})
	}
	return out
}

func (s *SyncServiceTestSuite) TestSyncOne_PartialFailure() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 5, CategoryID: 3, AuthorID: 2}
	opts := domain.ImportOptions{SourceURL: sourceURL, PostCount: 5, CategoryID: 3, AuthorID: 2}
	articles := remoteArticles(1, 2, 3, 4, 5)

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 5).Return(articles, nil)
	s.importer.EXPECT().BeginRun(sourceURL)
	for _, a := range articles {
		if a.ExternalID == 3 {
			s.importer.EXPECT().ImportOne(ctx, a, opts).Return(domain.Outcome(0),
				&domain.ImportError{ExternalID: 3, Reason: errors.New("db down")})
			continue
		}
		s.importer.EXPECT().ImportOne(ctx, a, opts).Return(domain.OutcomeImported, nil)
	}
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Equal(4, result.ImportedCount)
	s.Equal(1, result.ErrorCount)
	s.Equal(0, result.SkippedCount)
	s.Equal([]int64{1, 2, 4, 5}, result.Imported)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "db down")
}

func (s *SyncServiceTestSuite) TestSyncOne_SecondRunSkipsEverything() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 2}
	articles := remoteArticles(1, 2)

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 2).Return(articles, nil)
	s.importer.EXPECT().BeginRun(sourceURL)
	s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).Return(domain.OutcomeSkipped, nil).Times(2)
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Equal(0, result.ImportedCount)
	s.Equal(2, result.SkippedCount)
	s.Empty(result.Errors)
}

func (s *SyncServiceTestSuite) TestSyncOne_ClampsAndTruncates() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 500}

	page := make([]int64, 0, 120)
	for i := int64(1); i <= 120; i++ {
		page = append(page, i)
	}

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, domain.MaxPostCount).Return(remoteArticles(page...), nil)
	s.importer.EXPECT().BeginRun(sourceURL)
	s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).Return(domain.OutcomeImported, nil).Times(domain.MaxPostCount)
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Equal(domain.MaxPostCount, result.ImportedCount)
}

func (s *SyncServiceTestSuite) TestSyncOne_FetchFailure() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 10}

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 10).Return(nil, &domain.BadStatusError{Code: 503})
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Equal(0, result.ImportedCount)
	s.Equal([]string{"unexpected status: 503"}, result.Errors)
}

func (s *SyncServiceTestSuite) TestSyncOne_TouchFailureIsNotFatal() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 1}

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 1).Return(nil, nil)
	s.importer.EXPECT().BeginRun(sourceURL)
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(errors.New("settings down"))

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Empty(result.Errors)
}

func (s *SyncServiceTestSuite) TestSyncOne_RunInProgress() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 10}

	s.locker.EXPECT().TryLock(ctx, sourceURL).Return(nil, lock.ErrLocked)

	_, err := s.service.SyncOne(ctx, cfg)

	s.ErrorIs(err, domain.ErrRunInProgress)
}

func (s *SyncServiceTestSuite) TestSyncOne_ReleasesLock() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 1}
	released := false

	s.locker.EXPECT().TryLock(ctx, sourceURL).Return(func() { released = true }, nil)
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 1).Return(nil, errors.New("boom"))
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	_, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.True(released)
}

func (s *SyncServiceTestSuite) TestSyncOne_ImporterPanicCountsAsError() {
	ctx := context.Background()
	cfg := domain.SourceConfig{URL: sourceURL, PostCount: 2}

	s.expectLock()
	s.feed.EXPECT().FetchPage(ctx, sourceURL, 2).Return(remoteArticles(1, 2), nil)
	s.importer.EXPECT().BeginRun(sourceURL)
	gomock.InOrder(
		s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, domain.RemoteArticle, domain.ImportOptions) (domain.Outcome, error) {
				panic("nil map")
			},
		),
		s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).Return(domain.OutcomeImported, nil),
	)
	s.registry.EXPECT().Touch(gomock.Any(), sourceURL, gomock.Any()).Return(nil)

	result, err := s.service.SyncOne(ctx, cfg)

	s.NoError(err)
	s.Equal(1, result.ImportedCount)
	s.Equal(1, result.ErrorCount)
	s.Contains(result.Errors[0], "panic: nil map")
}

func (s *SyncServiceTestSuite) TestSyncAll_EmptyRegistry() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx).Return(nil, nil)

	result := s.service.SyncAll(ctx)

	s.Equal(0, result.TotalSources)
	s.Equal(0, result.SuccessfulSources)
	s.Equal(0, result.TotalArticlesImported)
	s.Equal([]string{"no sources configured"}, result.Errors)
}

func (s *SyncServiceTestSuite) TestSyncAll_RegistryError() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx).Return(nil, errors.New("settings down"))

	result := s.service.SyncAll(ctx)

	s.Equal(0, result.TotalSources)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "settings down")
}

func (s *SyncServiceTestSuite) TestSyncAll_AggregatesAndContinues() {
	ctx := context.Background()
	sources := []domain.SourceConfig{
		{ID: 0, URL: "https://a.example", PostCount: 2},
		{ID: 1, URL: ""},
		{ID: 2, URL: "https://b.example", PostCount: 1},
		{ID: 3, URL: "https://c.example", PostCount: 1},
		{ID: 4, URL: "https://d.example", PostCount: 1},
	}

	s.registry.EXPECT().List(ctx).Return(sources, nil)
	s.expectLock()
	s.registry.EXPECT().Touch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.importer.EXPECT().BeginRun(gomock.Any()).AnyTimes()

	s.feed.EXPECT().FetchPage(ctx, "https://a.example", 2).Return(remoteArticles(1, 2), nil)
	s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).Return(domain.OutcomeImported, nil).Times(2)

	s.feed.EXPECT().FetchPage(ctx, "https://b.example", 1).Return(nil, errors.New("feed unreachable: dial tcp"))

	s.feed.EXPECT().FetchPage(ctx, "https://c.example", 1).DoAndReturn(
		func(context.Context, string, int) ([]domain.RemoteArticle, error) {
			panic("unexpected")
		},
	)

	s.feed.EXPECT().FetchPage(ctx, "https://d.example", 1).Return(remoteArticles(9), nil)
	s.importer.EXPECT().ImportOne(ctx, gomock.Any(), gomock.Any()).Return(domain.OutcomeSkipped, nil)

	result := s.service.SyncAll(ctx)

	s.Equal(5, result.TotalSources)
	s.Equal(1, result.SuccessfulSources)
	s.Equal(2, result.TotalArticlesImported)
	s.Equal([]string{
		"source without url skipped",
		"error at https://b.example: feed unreachable: dial tcp",
		"error at https://c.example: panic: unexpected",
	}, result.Errors)
}

func (s *SyncServiceTestSuite) TestSyncAll_RunInProgressIsReported() {
	ctx := context.Background()
	sources := []domain.SourceConfig{{URL: sourceURL, PostCount: 1}}

	s.registry.EXPECT().List(ctx).Return(sources, nil)
	s.locker.EXPECT().TryLock(ctx, sourceURL).Return(nil, lock.ErrLocked)

	result := s.service.SyncAll(ctx)

	s.Equal(1, result.TotalSources)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "error at https://remote.example: run in progress")
}

func (s *SyncServiceTestSuite) TestSyncAll_CanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sources := []domain.SourceConfig{{URL: "https://a.example"}, {URL: "https://b.example"}}

	s.registry.EXPECT().List(ctx).Return(sources, nil)

	result := s.service.SyncAll(ctx)

	s.Equal(2, result.TotalSources)
	s.Equal([]string{
		"error at https://a.example: context canceled",
		"error at https://b.example: context canceled",
	}, result.Errors)
}
