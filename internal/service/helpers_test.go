package service_test

import (
	"time"

	"go.uber.org/mock/gomock"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/repository/mocks"
)

const (
	testCompanyID    = "company-1"
	testConnectionID = "conn-1"
	testInstance     = "acme-main"
	testToken        = "provider-token"
)

// repoMocks wires one mock per sub-repository behind a mock Repository.
type repoMocks struct {
	repo         *mocks.MockRepository
	connection   *mocks.MockConnectionRepository
	contact      *mocks.MockContactRepository
	conversation *mocks.MockConversationRepository
	message      *mocks.MockMessageRepository
	reaction     *mocks.MockReactionRepository
}

func newRepoMocks(ctrl *gomock.Controller) *repoMocks {
	m := &repoMocks{
		repo:         mocks.NewMockRepository(ctrl),
		connection:   mocks.NewMockConnectionRepository(ctrl),
		contact:      mocks.NewMockContactRepository(ctrl),
		conversation: mocks.NewMockConversationRepository(ctrl),
		message:      mocks.NewMockMessageRepository(ctrl),
		reaction:     mocks.NewMockReactionRepository(ctrl),
	}

	m.repo.EXPECT().Connection().Return(m.connection).AnyTimes()
	m.repo.EXPECT().Contact().Return(m.contact).AnyTimes()
	m.repo.EXPECT().Conversation().Return(m.conversation).AnyTimes()
	m.repo.EXPECT().Message().Return(m.message).AnyTimes()
	m.repo.EXPECT().Reaction().Return(m.reaction).AnyTimes()

	return m
}

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			Driver: config.QueueDriverRedis,
		},
		Functions: config.FunctionsConfig{
			BaseURL: "http://functions.local",
		},
		Agent: config.AgentConfig{
			Enabled:  true,
			MaxDelay: 10 * time.Millisecond,
		},
		Media: config.MediaConfig{
			RetryBackoff: time.Millisecond,
		},
		Sweeper: config.SweeperConfig{
			Enabled:    true,
			Interval:   time.Hour,
			StaleAfter: 30 * time.Minute,
			BatchSize:  50,
		},
	}
}

func testConnection() *models.Connection {
	return &models.Connection{
		ID:            testConnectionID,
		CompanyID:     testCompanyID,
		InstanceName:  testInstance,
		ProviderToken: testToken,
	}
}
