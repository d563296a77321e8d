package domain

// NetworkContext maps the logical contracts the commitments reference to their
// on-chain addresses. It is supplied once at construction and never mutated.
type NetworkContext struct {
	ETHBucket               Address `json:"ethBucket" yaml:"eth_bucket"`
	StateChannelTransaction Address `json:"stateChannelTransaction" yaml:"state_channel_transaction"`
	MultiSend               Address `json:"multiSend" yaml:"multi_send"`
	NonceRegistry           Address `json:"nonceRegistry" yaml:"nonce_registry"`
	AppRegistry             Address `json:"appRegistry" yaml:"app_registry"`
	ETHBalanceRefund        Address `json:"ethBalanceRefund" yaml:"eth_balance_refund"`
}
