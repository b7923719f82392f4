package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/chatgate/internal/admin"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := admin.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	err = app.Run(ctx, commandArgs(os.Args[1:]))
	_ = app.Close()

	if err != nil {
		log.Fatalf("%v", err)
	}

}

// commandArgs drops leading global config flags so the command name comes first.
func commandArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] != '-' && (i == 0 || !takesValue(args[i-1])) {
			return args[i:]
		}
	}
	return nil
}

func takesValue(flag string) bool {
	switch flag {
	case "-a", "-d", "-s", "-t", "-m", "-k", "-i", "-o", "-l", "-c", "-config":
		return true
	}
	return false
}
