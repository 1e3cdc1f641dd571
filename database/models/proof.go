package models

// ProofRecord is the latest proving attempt for one L2 transaction. Hashes
// and addresses are stored as 0x-prefixed hex. Retryable marks a failure
// caused by the RPC transport rather than by chain state.
type ProofRecord struct {
	TxHash         string  `json:"tx_hash" bson:"tx_hash"`
	WithdrawalHash string  `json:"withdrawal_hash,omitempty" bson:"withdrawal_hash,omitempty"`
	L2BlockNumber  uint64  `json:"l2_block_number,omitempty" bson:"l2_block_number,omitempty"`
	Status         string  `json:"status" bson:"status"`
	GameIndex      *uint64 `json:"game_index,omitempty" bson:"game_index,omitempty"`
	GameProxy      string  `json:"game_proxy,omitempty" bson:"game_proxy,omitempty"`
	GameL2Block    uint64  `json:"game_l2_block,omitempty" bson:"game_l2_block,omitempty"`
	RootVersion    string  `json:"root_version,omitempty" bson:"root_version,omitempty"`
	L1TxHash       string  `json:"l1_tx_hash,omitempty" bson:"l1_tx_hash,omitempty"`
	Stage          string  `json:"stage,omitempty" bson:"stage,omitempty"`
	Error          string  `json:"error,omitempty" bson:"error,omitempty"`
	Retryable      bool    `json:"retryable" bson:"retryable"`
	Attempts       int64   `json:"attempts" bson:"attempts"`
	CreatedAt      int64   `json:"created_at" bson:"created_at"`
	UpdatedAt      int64   `json:"updated_at" bson:"updated_at"`
}
