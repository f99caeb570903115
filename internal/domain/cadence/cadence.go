package cadence

// Cadence is a named, reusable template: an ordered list of steps.
type Cadence struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Validate ensures the template is identifiable and every step is well formed.
// A cadence without steps is valid; enrolling into it completes immediately.
func (c Cadence) Validate() error {
	if c.ID == "" {
		return newMissingFieldError("id")
	}
	if c.Name == "" {
		return newMissingFieldError("name").WithContext(map[string]interface{}{"cadence_id": c.ID})
	}
	if err := ValidateSteps(c.Steps); err != nil {
		if domainErr, ok := err.(*DomainError); ok {
			return domainErr.WithContext(map[string]interface{}{"cadence_id": c.ID})
		}
		return err
	}
	return nil
}

// Warnings aggregates content warnings from every step.
func (c Cadence) Warnings() []string {
	var out []string
	for _, step := range c.Steps {
		out = append(out, step.Warnings()...)
	}
	return out
}

// Clone returns a copy of the cadence with its own step slice.
func (c Cadence) Clone() Cadence {
	return Cadence{ID: c.ID, Name: c.Name, Steps: CloneSteps(c.Steps)}
}
