// Package document validates identity and professional document numbers.
//
// Every document type has a fixed shape (a regular expression over the
// normalized value) and, for some types, a weighted check digit:
//
//	national id    ^(V-?)?\d{7,8}$    descending weights, sum mod 10 == last digit
//	foreign id     ^E-?\d{8}$         ascending weights over 7 digits, == 8th digit
//	passport       ^VE\d{7}$          ascending weights over all 7 digits, sum mod 10 == 0
//	license        ^(MPPS-?)?\d{4,8}$ format only
//	driver license ^LC-?\d{7,8}$      format only
//	birth record   ^PN-?\d{6,12}$     format only
//
// Domain Purity: validation is a pure function of its inputs. The current
// time is an option so results are reproducible in tests.
//
// Validate never panics and never returns an error value: problems are
// reported in Result.Errors, softer signals in Result.Warnings.
package document
