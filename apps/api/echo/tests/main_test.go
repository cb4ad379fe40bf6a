package tests

import (
	"os"
	"testing"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/user"
	logsvc "github.com/trezcool/alumni/services/logger"
)

func TestMain(m *testing.M) {
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(core.NewTestConfig(), logger)
	user.LoadCommonPasswords(logger)

	os.Exit(m.Run())
}
