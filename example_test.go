package chanflow_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/node"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

func Example() {
	ctx := context.Background()
	router := transport.NewRouter()

	newNode := func(fill byte) *node.Node {
		keys, err := xkeys.NewKeyring(bytes.Repeat([]byte{fill}, 32))
		if err != nil {
			panic(err)
		}
		n, err := node.New(keys, domain.NetworkContext{}, memory.NewStore(), router)
		if err != nil {
			panic(err)
		}
		router.Register(n.Xpub(), n)
		return n
	}
	alice, bob := newNode(1), newNode(2)

	ch, err := alice.Setup(ctx, bob.Xpub(), "0x00000000000000000000000000000000000000ff")
	if err != nil {
		fmt.Println("setup failed:", err)
		return
	}
	if err := router.Wait(); err != nil {
		fmt.Println("responder failed:", err)
		return
	}

	onBob, err := bob.Channel(ctx, ch.MultisigAddress)
	if err != nil {
		fmt.Println("bob has no channel:", err)
		return
	}
	fmt.Println("owners:", len(ch.MultisigOwners))
	fmt.Println("apps:", len(onBob.AppInstances))
	fmt.Println("pending replies:", router.Pending())
	// Output:
	// owners: 2
	// apps: 1
	// pending replies: 0
}
