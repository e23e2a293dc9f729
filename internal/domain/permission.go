package domain

// Operation is an access class checked against the permission scope.
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpExecute Operation = "execute"
	OpDelete  Operation = "delete"
)
