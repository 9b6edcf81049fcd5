package pipeline

import "context"

// ValidationBehavior runs every validator registered for the request kind and
// aggregates all field errors into a single rejection. A request that fails
// validation never reaches authorization, the handler, or invalidation.
type ValidationBehavior struct {
	validators map[string][]Validator
}

// NewValidationBehavior creates the behavior from per-kind validator lists.
func NewValidationBehavior(validators map[string][]Validator) *ValidationBehavior {
	if validators == nil {
		validators = make(map[string][]Validator)
	}
	return &ValidationBehavior{validators: validators}
}

func (b *ValidationBehavior) Handle(ctx context.Context, req Request, d Descriptor, next Next) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	advance(ctx, StateValidating)

	var fields []FieldError
	for _, v := range b.validators[d.Kind] {
		fields = append(fields, v(ctx, req)...)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Kind: d.Kind, Fields: fields}
	}

	return next(ctx)
}

var _ Behavior = (*ValidationBehavior)(nil)
