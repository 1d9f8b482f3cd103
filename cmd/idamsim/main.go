// idamsim - OAuth2/OIDC identity provider simulator for local testing
package main

import "github.com/getmockd/idamsim/pkg/cli"

func main() {
	cli.Execute()
}
