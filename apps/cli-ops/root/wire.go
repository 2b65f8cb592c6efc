package root

import (
	authcmd "github.com/loopcollab/loop-saas/apps/cli-ops/cmd/auth"
	claimscmd "github.com/loopcollab/loop-saas/apps/cli-ops/cmd/claims"
	provisioningcmd "github.com/loopcollab/loop-saas/apps/cli-ops/cmd/provisioning"
	rolescmd "github.com/loopcollab/loop-saas/apps/cli-ops/cmd/roles"
)

func init() {
	Root().AddCommand(authcmd.Command())
	Root().AddCommand(claimscmd.Command())
	Root().AddCommand(provisioningcmd.Command())
	Root().AddCommand(rolescmd.Command())
}
