package models

// DefaultMultiplier applies when no multiplier was set for a slave/master pair.
const DefaultMultiplier = 1.0

// SlaveConfig is the copy configuration of one slave under one master.
type SlaveConfig struct {
	Paused     bool    `json:"paused"`
	Multiplier float64 `json:"multiplier"`
}

// CopyLinkRequest names a master/slave pair.
type CopyLinkRequest struct {
	MasterAccount string `json:"masterAccount" validate:"required"`
	SlaveAccount  string `json:"slaveAccount" validate:"required"`
}

type PauseRequest struct {
	MasterAccount string `json:"masterAccount" validate:"required"`
	SlaveAccount  string `json:"slaveAccount" validate:"required"`
	Paused        *bool  `json:"paused" validate:"required"`
}

type MultiplierRequest struct {
	MasterAccount string   `json:"masterAccount" validate:"required"`
	SlaveAccount  string   `json:"slaveAccount" validate:"required"`
	Multiplier    *float64 `json:"multiplier" validate:"required,finite,gt=0,lte=100"`
}

type SymbolMapRequest struct {
	SlaveAccount  string `json:"slaveAccount" validate:"required"`
	BaseSymbol    string `json:"baseSymbol" validate:"required,notblank"`
	SlaveSymbol   string `json:"slaveSymbol" validate:"required,notblank"`
	MasterAccount string `json:"masterAccount,omitempty"`
}

type DeleteSymbolMapRequest struct {
	SlaveAccount string `json:"slaveAccount" validate:"required"`
	BaseSymbol   string `json:"baseSymbol" validate:"required,notblank"`
}

// AliasMap maps a canonical symbol name to its broker-specific aliases.
type AliasMap map[string][]string

type AliasesRequest struct {
	SlaveAccount string   `json:"slaveAccount" validate:"required"`
	Aliases      AliasMap `json:"aliases" validate:"required,dive,keys,notblank,endkeys,dive,notblank"`
}

type AccountRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required"`
}
