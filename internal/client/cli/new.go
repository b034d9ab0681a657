package cli

import (
	"github.com/iudanet/gophmesh/internal/client/iocli"
	"github.com/iudanet/gophmesh/internal/db"
)

// RunNew prints a fresh connection string. It does not need an open database
func RunNew(io iocli.IO) error {
	conn, err := db.NewConnectionString()
	if err != nil {
		return err
	}
	io.Println(conn)
	return nil
}
