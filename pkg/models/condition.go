package models

// ConditionField selects which client attribute a conditional step inspects.
type ConditionField string

const (
	ConditionTags             ConditionField = "tags"
	ConditionAppointmentCount ConditionField = "appointment_count"
	ConditionAppointmentType  ConditionField = "appointment_type"
	ConditionClientStatus     ConditionField = "client_status"
	ConditionLastAppointment  ConditionField = "last_appointment_date"
)

// ConditionOperator compares the resolved field against the condition value.
// Valid operators depend on the field category: tag fields take has_tag /
// not_has_tag, numeric and date fields take the comparison operators, and
// string fields compare case-insensitively.
type ConditionOperator string

const (
	OpHasTag    ConditionOperator = "has_tag"
	OpNotHasTag ConditionOperator = "not_has_tag"
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "not_equals"

	// OpContains is substring match on string fields and an alias of
	// has_tag on the tags field.
	OpContains ConditionOperator = "contains"

	// OpStringContains is a legacy alias of contains kept for stored
	// workflows written before the operator was renamed.
	OpStringContains ConditionOperator = "string_contains"

	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
)

// Condition is one branch predicate. Value holds the comparison operand as a
// string; numeric and day-delta fields parse it at evaluation time.
type Condition struct {
	Field    ConditionField    `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    string            `json:"value"`
}
