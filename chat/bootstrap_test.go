package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/vichat/client-go/chat"
	"github.com/vichat/client-go/chat/mock"
	"github.com/vichat/client-go/model"
)

func TestBootstrapRunsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	b := chat.NewBootstrapper(chat.NewDirectory(api, 20))

	// Conversations first, then users, each exactly once.
	gomock.InOrder(
		api.EXPECT().Conversations(gomock.Any()).Return([]model.Conversation{conv(7, "bob", 1)}, nil),
		api.EXPECT().Users(gomock.Any(), 20, 0).Return([]model.User{{ID: 7, Username: "bob"}}, nil),
	)

	assert.Equal(t, chat.BootNotStarted, b.State())
	b.Run(context.Background())
	assert.Equal(t, chat.BootDone, b.State())

	// Latched: repeat runs are no-ops.
	b.Run(context.Background())
	b.Run(context.Background())
}

func TestBootstrapResetAllowsOneMore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	b := chat.NewBootstrapper(chat.NewDirectory(api, 20))

	api.EXPECT().Conversations(gomock.Any()).Return(nil, nil).Times(2)
	api.EXPECT().Users(gomock.Any(), 20, 0).Return(nil, nil).Times(2)

	b.Run(context.Background())
	b.Reset()
	assert.Equal(t, chat.BootNotStarted, b.State())

	b.Run(context.Background())
	b.Run(context.Background())
}

func TestBootstrapAbsorbsFetchErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	b := chat.NewBootstrapper(chat.NewDirectory(api, 20))

	api.EXPECT().Conversations(gomock.Any()).Return(nil, errors.New("backend down"))
	api.EXPECT().Users(gomock.Any(), 20, 0).Return(nil, errors.New("backend down"))

	b.Run(context.Background())

	// A failed run still latches; retry is an explicit Reset.
	assert.Equal(t, chat.BootDone, b.State())
}
