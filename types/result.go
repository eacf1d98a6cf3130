package types

// MaxLogTopics bounds the number of topics on a single log entry.
const MaxLogTopics = 4

// LogEntry is an event emitted by a contract during one invocation.
type LogEntry struct {
	Address Address
	Topics  []H256
	Data    []byte
}

// StateAccount is a provider snapshot of one account. It is never cached.
type StateAccount struct {
	Nonce   *U256
	Balance *U256
	Code    []byte
}

// ResultData is the terminal outcome of a successful execution.
type ResultData struct {
	GasLeft  *U256
	Data     []byte
	Contract Address
	Logs     []LogEntry
}
