package rules

// NopEngine matches nothing: every call passes through. It is the default
// engine when no real rule engine has been linked in, leaving the
// interception layer metering-only.
type NopEngine struct{}

func (NopEngine) Configure(string) error { return nil }

func (NopEngine) Append(string) {}

func (NopEngine) MatchConnection(Addr, uint16, uintptr) Decision { return Decision{} }

func (NopEngine) MatchHostname(string) Decision { return Decision{} }
