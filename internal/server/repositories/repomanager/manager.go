package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/authgrants"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/chatrecords"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	ChatRecords(db dbx.DBTX) chatrecords.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	AuthGrants(db dbx.DBTX) authgrants.Repository
}
