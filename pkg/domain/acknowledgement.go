package domain

// Acknowledgement records whether a handler accepts the work it was handed,
// plus the messages it produced. Instances are created fresh per handler call
// and must not be mutated after being returned.
type Acknowledgement struct {
	WillComply bool     `json:"will_comply"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	Info       []string `json:"info"`
}

// Accept returns an acknowledgement that complies, carrying optional info messages.
func Accept(info ...string) *Acknowledgement {
	return &Acknowledgement{
		WillComply: true,
		Errors:     []string{},
		Warnings:   []string{},
		Info:       append([]string{}, info...),
	}
}

// Reject returns an acknowledgement that does not comply, carrying the given errors.
func Reject(errs ...string) *Acknowledgement {
	return &Acknowledgement{
		WillComply: false,
		Errors:     append([]string{}, errs...),
		Warnings:   []string{},
		Info:       []string{},
	}
}

// WithInfo returns a copy with msg appended to Info.
func (a *Acknowledgement) WithInfo(msg string) *Acknowledgement {
	c := a.clone()
	c.Info = append(c.Info, msg)
	return c
}

// WithWarning returns a copy with msg appended to Warnings.
func (a *Acknowledgement) WithWarning(msg string) *Acknowledgement {
	c := a.clone()
	c.Warnings = append(c.Warnings, msg)
	return c
}

// WithError returns a copy with msg appended to Errors. It does not change WillComply.
func (a *Acknowledgement) WithError(msg string) *Acknowledgement {
	c := a.clone()
	c.Errors = append(c.Errors, msg)
	return c
}

func (a *Acknowledgement) clone() *Acknowledgement {
	if a == nil {
		return Accept()
	}
	return &Acknowledgement{
		WillComply: a.WillComply,
		Errors:     append([]string{}, a.Errors...),
		Warnings:   append([]string{}, a.Warnings...),
		Info:       append([]string{}, a.Info...),
	}
}

// Aggregate folds acknowledgements into one.
//
// Combination rule: WillComply is the AND of every input (true for no input),
// and Errors, Warnings and Info are the concatenation of every input's lists
// in argument order. Nil acknowledgements carry no opinion and are skipped.
func Aggregate(acks ...*Acknowledgement) *Acknowledgement {
	out := Accept()
	for _, a := range acks {
		if a == nil {
			continue
		}
		out.WillComply = out.WillComply && a.WillComply
		out.Errors = append(out.Errors, a.Errors...)
		out.Warnings = append(out.Warnings, a.Warnings...)
		out.Info = append(out.Info, a.Info...)
	}
	return out
}
