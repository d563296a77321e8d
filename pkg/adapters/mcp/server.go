// Package mcp exposes a node to agents as Model Context Protocol tools, so an
// operator assistant can open channels and install or remove apps.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/aretw0/chanflow"
	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ChannelsURI is the resource listing every channel the node holds.
const ChannelsURI = "chanflow://channels"

// Node is the participant driven by the tools.
type Node interface {
	Xpub() string
	Address() (domain.Address, error)
	Setup(ctx context.Context, counterparty string, multisig domain.Address) (*domain.StateChannel, error)
	Install(ctx context.Context, params domain.InstallParams) (*domain.StateChannel, domain.AppInstance, error)
	Uninstall(ctx context.Context, params domain.UninstallParams) (*domain.StateChannel, error)
	Channels(ctx context.Context) (domain.ChannelMap, error)
}

// Identity describes the node.
type Identity struct {
	Xpub    string         `json:"xpub" jsonschema_description:"Extended public key identifying the node"`
	Address domain.Address `json:"address" jsonschema_description:"Channel-owner address (child key 0)"`
}

// ChannelSummary is the compact view of a channel returned by the tools.
type ChannelSummary struct {
	Multisig     domain.Address    `json:"multisig" jsonschema_description:"Multisig address of the channel"`
	Owners       []domain.Address  `json:"owners" jsonschema_description:"Sorted channel owners"`
	Apps         []string          `json:"apps" jsonschema_description:"Identity hashes of installed non free-balance apps"`
	FreeBalance  map[string]string `json:"freeBalance" jsonschema_description:"ETH free balance per owner address"`
	InstalledApp string            `json:"installedApp,omitempty" jsonschema_description:"Identity hash of the app installed by this call"`
}

// ChannelList wraps the channel summaries.
type ChannelList struct {
	Channels []ChannelSummary `json:"channels"`
}

// SetupArgs are the channel_setup arguments.
type SetupArgs struct {
	Counterparty string `json:"counterparty"`
	Multisig     string `json:"multisig"`
}

// InstallArgs are the app_install arguments. Amounts are decimal strings.
type InstallArgs struct {
	Counterparty     string `json:"counterparty"`
	Multisig         string `json:"multisig"`
	AppDefinition    string `json:"app_definition"`
	StateEncoding    string `json:"state_encoding"`
	ActionEncoding   string `json:"action_encoding"`
	InitialState     string `json:"initial_state"`
	InitiatorDeposit string `json:"initiator_deposit"`
	ResponderDeposit string `json:"responder_deposit"`
	Limit            string `json:"limit"`
	DefaultTimeout   int64  `json:"default_timeout"`
}

// UninstallArgs are the app_uninstall arguments.
type UninstallArgs struct {
	Counterparty string `json:"counterparty"`
	Multisig     string `json:"multisig"`
	App          string `json:"app"`
}

// Server exposes a node as an MCP server.
type Server struct {
	node      Node
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the MCP server for node.
func NewServer(node Node, opts ...Option) *Server {
	s := &Server{
		node:      node,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("chanflow", strings.TrimSpace(chanflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("identity",
		mcp.WithDescription("Return the node's xpub and owner address."),
		mcp.WithOutputSchema[Identity](),
	), mcp.NewStructuredToolHandler(s.handleIdentity))

	s.mcpServer.AddTool(mcp.NewTool("channels_list",
		mcp.WithDescription("List the channels this node holds with their free balances."),
		mcp.WithOutputSchema[ChannelList](),
	), mcp.NewStructuredToolHandler(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("channel_setup",
		mcp.WithDescription("Open a channel with a counterparty node."),
		mcp.WithString("counterparty", mcp.Required(), mcp.Description("xpub of the counterparty")),
		mcp.WithString("multisig", mcp.Required(), mcp.Description("Multisig address of the new channel")),
		mcp.WithOutputSchema[ChannelSummary](),
	), mcp.NewStructuredToolHandler(s.handleSetup))

	s.mcpServer.AddTool(mcp.NewTool("app_install",
		mcp.WithDescription("Install an app funded from the ETH free balance."),
		mcp.WithString("counterparty", mcp.Required(), mcp.Description("xpub of the counterparty")),
		mcp.WithString("multisig", mcp.Required(), mcp.Description("Multisig address of the channel")),
		mcp.WithString("app_definition", mcp.Required(), mcp.Description("Address of the app definition contract")),
		mcp.WithString("state_encoding", mcp.Required(), mcp.Description("ABI encoding of the app state")),
		mcp.WithString("action_encoding", mcp.Description("ABI encoding of app actions")),
		mcp.WithString("initial_state", mcp.Description("JSON object holding the initial app state")),
		mcp.WithString("initiator_deposit", mcp.Description("Amount in wei taken from this node's balance")),
		mcp.WithString("responder_deposit", mcp.Description("Amount in wei taken from the counterparty's balance")),
		mcp.WithString("limit", mcp.Description("Maximum total deposit in wei")),
		mcp.WithNumber("default_timeout", mcp.Description("Dispute timeout in blocks")),
		mcp.WithOutputSchema[ChannelSummary](),
	), mcp.NewStructuredToolHandler(s.handleInstall))

	s.mcpServer.AddTool(mcp.NewTool("app_uninstall",
		mcp.WithDescription("Uninstall an app and return its deposits to the free balance."),
		mcp.WithString("counterparty", mcp.Required(), mcp.Description("xpub of the counterparty")),
		mcp.WithString("multisig", mcp.Required(), mcp.Description("Multisig address of the channel")),
		mcp.WithString("app", mcp.Required(), mcp.Description("Identity hash of the app")),
		mcp.WithOutputSchema[ChannelSummary](),
	), mcp.NewStructuredToolHandler(s.handleUninstall))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ChannelsURI, "Channels",
		mcp.WithResourceDescription("Every channel held by the node"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.list(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to encode channels: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ChannelsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func (s *Server) handleIdentity(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (Identity, error) {
	addr, err := s.node.Address()
	if err != nil {
		return Identity{}, err
	}
	return Identity{Xpub: s.node.Xpub(), Address: addr}, nil
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (ChannelList, error) {
	return s.list(ctx)
}

func (s *Server) handleSetup(ctx context.Context, _ mcp.CallToolRequest, args SetupArgs) (ChannelSummary, error) {
	if args.Counterparty == "" || args.Multisig == "" {
		return ChannelSummary{}, errors.New("counterparty and multisig are required")
	}
	ch, err := s.node.Setup(ctx, args.Counterparty, domain.Address(args.Multisig))
	if err != nil {
		s.logger.WarnContext(ctx, "setup tool failed", "multisig", args.Multisig, "err", err)
		return ChannelSummary{}, fmt.Errorf("setup failed: %w", err)
	}
	return summarize(ch)
}

func (s *Server) handleInstall(ctx context.Context, _ mcp.CallToolRequest, args InstallArgs) (ChannelSummary, error) {
	params, err := installParams(args)
	if err != nil {
		return ChannelSummary{}, err
	}
	ch, app, err := s.node.Install(ctx, params)
	if err != nil {
		s.logger.WarnContext(ctx, "install tool failed", "multisig", args.Multisig, "err", err)
		return ChannelSummary{}, fmt.Errorf("install failed: %w", err)
	}
	out, err := summarize(ch)
	if err != nil {
		return ChannelSummary{}, err
	}
	out.InstalledApp = app.IdentityHash().Hex()
	return out, nil
}

func (s *Server) handleUninstall(ctx context.Context, _ mcp.CallToolRequest, args UninstallArgs) (ChannelSummary, error) {
	id, err := domain.ParseDigest(args.App)
	if err != nil {
		return ChannelSummary{}, err
	}
	ch, err := s.node.Uninstall(ctx, domain.UninstallParams{
		RespondingXpub:  args.Counterparty,
		MultisigAddress: domain.Address(args.Multisig),
		AppIdentityHash: id,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "uninstall tool failed", "multisig", args.Multisig, "err", err)
		return ChannelSummary{}, fmt.Errorf("uninstall failed: %w", err)
	}
	return summarize(ch)
}

func (s *Server) list(ctx context.Context) (ChannelList, error) {
	channels, err := s.node.Channels(ctx)
	if err != nil {
		return ChannelList{}, err
	}
	out := ChannelList{Channels: make([]ChannelSummary, 0, len(channels))}
	for _, ch := range channels {
		summary, err := summarize(ch)
		if err != nil {
			return ChannelList{}, err
		}
		out.Channels = append(out.Channels, summary)
	}
	sort.Slice(out.Channels, func(i, j int) bool {
		return out.Channels[i].Multisig.Canonical() < out.Channels[j].Multisig.Canonical()
	})
	return out, nil
}

func installParams(args InstallArgs) (domain.InstallParams, error) {
	if args.Counterparty == "" || args.Multisig == "" || args.AppDefinition == "" || args.StateEncoding == "" {
		return domain.InstallParams{}, errors.New("counterparty, multisig, app_definition and state_encoding are required")
	}
	if args.DefaultTimeout < 0 {
		return domain.InstallParams{}, fmt.Errorf("negative default_timeout %d", args.DefaultTimeout)
	}
	initiator, err := amount("initiator_deposit", args.InitiatorDeposit)
	if err != nil {
		return domain.InstallParams{}, err
	}
	responder, err := amount("responder_deposit", args.ResponderDeposit)
	if err != nil {
		return domain.InstallParams{}, err
	}
	limit := new(big.Int).Add(initiator, responder)
	if args.Limit != "" {
		if limit, err = amount("limit", args.Limit); err != nil {
			return domain.InstallParams{}, err
		}
	}
	state := map[string]any{}
	if args.InitialState != "" {
		if err := json.Unmarshal([]byte(args.InitialState), &state); err != nil {
			return domain.InstallParams{}, fmt.Errorf("initial_state must be a JSON object: %w", err)
		}
	}
	return domain.InstallParams{
		RespondingXpub:            args.Counterparty,
		MultisigAddress:           domain.Address(args.Multisig),
		InitiatorBalanceDecrement: initiator,
		ResponderBalanceDecrement: responder,
		InitialState:              state,
		Terms:                     domain.Terms{AssetType: domain.AssetETH, Limit: limit, Token: domain.AddressZero},
		AppInterface: domain.AppInterface{
			Addr:           domain.Address(args.AppDefinition),
			StateEncoding:  args.StateEncoding,
			ActionEncoding: args.ActionEncoding,
		},
		DefaultTimeout: uint64(args.DefaultTimeout),
	}, nil
}

func amount(name, v string) (*big.Int, error) {
	if v == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", name, v)
	}
	return n, nil
}

func summarize(ch *domain.StateChannel) (ChannelSummary, error) {
	out := ChannelSummary{
		Multisig:    ch.MultisigAddress,
		Owners:      ch.MultisigOwners,
		Apps:        []string{},
		FreeBalance: map[string]string{},
	}
	for id := range ch.AppInstances {
		if !ch.IsFreeBalance(id) {
			out.Apps = append(out.Apps, id.Hex())
		}
	}
	sort.Strings(out.Apps)

	fb, err := ch.FreeBalanceFor(domain.AssetETH)
	if err != nil {
		return out, err
	}
	st, err := fb.FreeBalance()
	if err != nil {
		return out, err
	}
	out.FreeBalance[string(st.Alice)] = st.AliceBalance.String()
	out.FreeBalance[string(st.Bob)] = st.BobBalance.String()
	return out, nil
}
