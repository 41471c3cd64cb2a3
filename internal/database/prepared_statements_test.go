package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pickProfile(ps *PreparedStatements) *sql.Stmt { return ps.getRiskProfile }

func TestCloseWaitsForInFlightQuery(t *testing.T) {
	d := &Database{}
	ps := &PreparedStatements{}
	d.stmts.Store(ps)

	started := make(chan struct{})
	release := make(chan struct{})
	go d.run(pickProfile, func(*sql.Stmt) error {
		close(started)
		<-release
		return nil
	})
	<-started

	closed := make(chan struct{})
	go func() {
		ps.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("statements closed under a running query")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-closed
}

func TestRunAfterClose(t *testing.T) {
	d := &Database{}
	d.stmts.Store(&PreparedStatements{})
	d.ClosePreparedStatements()

	err := d.run(pickProfile, func(*sql.Stmt) error { return nil })
	assert.ErrorIs(t, err, errStatementsClosed)
	assert.False(t, isBadPreparedStatement(err))
}
