package evm

// Minimal ABI fragments for the escrow factory and escrow instance
// contracts this adapter calls. The contracts themselves are out of
// scope (spec.md §1 "Out of scope: the on-chain escrow contracts
// themselves"); these fragments only need to cover the methods this
// adapter invokes.
const escrowFactoryABIJSON = `[
	{"type":"function","name":"predictEscrowAddress","stateMutability":"view",
	 "inputs":[{"name":"orderHash","type":"bytes32"},{"name":"hashlock","type":"bytes32"}],
	 "outputs":[{"name":"escrow","type":"address"}]},
	{"type":"function","name":"deployEscrow","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"hashlock","type":"bytes32"},
		{"name":"maker","type":"address"},
		{"name":"taker","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"safetyDeposit","type":"uint256"},
		{"name":"packedTimelocks","type":"uint256"}
	 ],
	 "outputs":[{"name":"escrow","type":"address"}]}
]`

const escrowABIJSON = `[
	{"type":"function","name":"fund","stateMutability":"payable",
	 "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[{"name":"preimage","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"cancel","stateMutability":"nonpayable",
	 "inputs":[],"outputs":[]},
	{"type":"function","name":"state","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"state","type":"uint8"}]}
]`
