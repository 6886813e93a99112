package muc

import (
	"fmt"
	"strconv"
)

// Properties are the room settings an operator can change. Nil fields are
// left alone.
type Properties struct {
	InviteOnly        *bool
	Moderated         *bool
	Private           *bool
	Limit             *uint
	PasswordProtected *bool
	Password          *string
}

func (p Properties) validate() error {
	if p.PasswordProtected != nil && *p.PasswordProtected {
		if p.Password == nil || *p.Password == "" {
			return fmt.Errorf("%w: password protection needs a password", ErrInvalidArgument)
		}
	}
	if p.PasswordProtected != nil && !*p.PasswordProtected && p.Password != nil && *p.Password != "" {
		return fmt.Errorf("%w: password given while disabling protection", ErrInvalidArgument)
	}
	return nil
}

// SetProperties sends the MODE changes for props. We must be joined and
// hold op.
func (c *Channel) SetProperties(props Properties) error {
	if err := props.validate(); err != nil {
		return err
	}
	if c.state != StateJoined {
		return fmt.Errorf("%w: not joined to %s", ErrNotAvailable, c.name)
	}
	if c.modes&ModeOp == 0 {
		return fmt.Errorf("%w: not an operator of %s", ErrPermissionDenied, c.name)
	}

	var cmds []string
	flag := func(v *bool, letter string) {
		if v == nil {
			return
		}
		sign := "-"
		if *v {
			sign = "+"
		}
		cmds = append(cmds, "MODE "+c.name+" "+sign+letter)
	}
	flag(props.InviteOnly, "i")
	flag(props.Moderated, "m")
	flag(props.Private, "s")

	if props.Limit != nil {
		if *props.Limit == 0 {
			cmds = append(cmds, "MODE "+c.name+" -l")
		} else {
			cmds = append(cmds, "MODE "+c.name+" +l "+strconv.FormatUint(uint64(*props.Limit), 10))
		}
	}

	switch {
	case props.Password != nil && *props.Password != "":
		cmds = append(cmds, "MODE "+c.name+" +k "+*props.Password)
	case props.PasswordProtected != nil && !*props.PasswordProtected:
		key := c.key
		if key == "" {
			key = "*"
		}
		cmds = append(cmds, "MODE "+c.name+" -k "+key)
	}

	for _, cmd := range cmds {
		if err := c.send(cmd); err != nil {
			return err
		}
	}
	return nil
}
