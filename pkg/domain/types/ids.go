package types

// EventID is the stable identity of an inbound event
type EventID string

func (x EventID) String() string { return string(x) }

// RunID identifies a pipeline run created by the dispatcher
type RunID string

func (x RunID) String() string { return string(x) }

// PipelineID identifies a pipeline in the execution engine
type PipelineID string

func (x PipelineID) String() string { return string(x) }

// SecretName is an opaque key in the secret store
type SecretName string

func (x SecretName) String() string { return string(x) }
