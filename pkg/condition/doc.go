/*
Package condition evaluates route conditions against completed responses.

A response may be any Go value: maps are walked by key, structs by field name
(exported name, json tag, or a case-insensitive snake_case form), slices by
numeric index. A segment that cannot be resolved makes the whole path absent,
and absent is indistinguishable from an explicit null.

Comparisons between incompatible operands resolve to false and are logged as
warnings; evaluation never panics, so one malformed route can never abort the
dispatch of an otherwise valid response.
*/
package condition
