package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/walletledger/internal/notify"
)

func TestHistoryDeps_DisabledBackendsStayNil(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &Dependencies{Notifier: notify.NewNotifier(nil, nil, logger)}

	hd := historyDeps(deps)
	assert.Nil(t, hd.Alerts)
	assert.Nil(t, hd.Locks)
	assert.Nil(t, hd.ClientIDs)
	assert.Nil(t, hd.Instruments)
	assert.Nil(t, hd.Archive)
	assert.NotNil(t, hd.Decode)

	deps.Notifier = notify.NewNotifier([]notify.Sender{notify.NewDiscordSender("http://127.0.0.1:1")}, nil, logger)
	assert.NotNil(t, historyDeps(deps).Alerts)
}
