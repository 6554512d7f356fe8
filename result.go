package argon2wasm

import "strconv"

// Status is an Argon2 return code as defined by argon2.h.
type Status int32

const (
	StatusOK                    Status = 0
	StatusOutputPtrNull         Status = -1
	StatusOutputTooShort        Status = -2
	StatusOutputTooLong         Status = -3
	StatusPwdTooShort           Status = -4
	StatusPwdTooLong            Status = -5
	StatusSaltTooShort          Status = -6
	StatusSaltTooLong           Status = -7
	StatusADTooShort            Status = -8
	StatusADTooLong             Status = -9
	StatusSecretTooShort        Status = -10
	StatusSecretTooLong         Status = -11
	StatusTimeTooSmall          Status = -12
	StatusTimeTooLarge          Status = -13
	StatusMemoryTooLittle       Status = -14
	StatusMemoryTooMuch         Status = -15
	StatusLanesTooFew           Status = -16
	StatusLanesTooMany          Status = -17
	StatusPwdPtrMismatch        Status = -18
	StatusSaltPtrMismatch       Status = -19
	StatusSecretPtrMismatch     Status = -20
	StatusADPtrMismatch         Status = -21
	StatusMemoryAllocationError Status = -22
	StatusFreeMemoryCbkNull     Status = -23
	StatusAllocateMemoryCbkNull Status = -24
	StatusIncorrectParameter    Status = -25
	StatusIncorrectType         Status = -26
	StatusOutPtrMismatch        Status = -27
	StatusThreadsTooFew         Status = -28
	StatusThreadsTooMany        Status = -29
	StatusMissingArgs           Status = -30
	StatusEncodingFail          Status = -31
	StatusDecodingFail          Status = -32
	StatusThreadFail            Status = -33
	StatusDecodingLengthFail    Status = -34
	StatusVerifyMismatch        Status = -35
)

var statusNames = map[Status]string{
	StatusOK:                    "ARGON2_OK",
	StatusOutputPtrNull:         "ARGON2_OUTPUT_PTR_NULL",
	StatusOutputTooShort:        "ARGON2_OUTPUT_TOO_SHORT",
	StatusOutputTooLong:         "ARGON2_OUTPUT_TOO_LONG",
	StatusPwdTooShort:           "ARGON2_PWD_TOO_SHORT",
	StatusPwdTooLong:            "ARGON2_PWD_TOO_LONG",
	StatusSaltTooShort:          "ARGON2_SALT_TOO_SHORT",
	StatusSaltTooLong:           "ARGON2_SALT_TOO_LONG",
	StatusADTooShort:            "ARGON2_AD_TOO_SHORT",
	StatusADTooLong:             "ARGON2_AD_TOO_LONG",
	StatusSecretTooShort:        "ARGON2_SECRET_TOO_SHORT",
	StatusSecretTooLong:         "ARGON2_SECRET_TOO_LONG",
	StatusTimeTooSmall:          "ARGON2_TIME_TOO_SMALL",
	StatusTimeTooLarge:          "ARGON2_TIME_TOO_LARGE",
	StatusMemoryTooLittle:       "ARGON2_MEMORY_TOO_LITTLE",
	StatusMemoryTooMuch:         "ARGON2_MEMORY_TOO_MUCH",
	StatusLanesTooFew:           "ARGON2_LANES_TOO_FEW",
	StatusLanesTooMany:          "ARGON2_LANES_TOO_MANY",
	StatusPwdPtrMismatch:        "ARGON2_PWD_PTR_MISMATCH",
	StatusSaltPtrMismatch:       "ARGON2_SALT_PTR_MISMATCH",
	StatusSecretPtrMismatch:     "ARGON2_SECRET_PTR_MISMATCH",
	StatusADPtrMismatch:         "ARGON2_AD_PTR_MISMATCH",
	StatusMemoryAllocationError: "ARGON2_MEMORY_ALLOCATION_ERROR",
	StatusFreeMemoryCbkNull:     "ARGON2_FREE_MEMORY_CBK_NULL",
	StatusAllocateMemoryCbkNull: "ARGON2_ALLOCATE_MEMORY_CBK_NULL",
	StatusIncorrectParameter:    "ARGON2_INCORRECT_PARAMETER",
	StatusIncorrectType:         "ARGON2_INCORRECT_TYPE",
	StatusOutPtrMismatch:        "ARGON2_OUT_PTR_MISMATCH",
	StatusThreadsTooFew:         "ARGON2_THREADS_TOO_FEW",
	StatusThreadsTooMany:        "ARGON2_THREADS_TOO_MANY",
	StatusMissingArgs:           "ARGON2_MISSING_ARGS",
	StatusEncodingFail:          "ARGON2_ENCODING_FAIL",
	StatusDecodingFail:          "ARGON2_DECODING_FAIL",
	StatusThreadFail:            "ARGON2_THREAD_FAIL",
	StatusDecodingLengthFail:    "ARGON2_DECODING_LENGTH_FAIL",
	StatusVerifyMismatch:        "ARGON2_VERIFY_MISMATCH",
}

// String returns the argon2.h constant name of s.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "ARGON2_UNKNOWN(" + strconv.Itoa(int(s)) + ")"
}

// HashOutcome is the result of Hasher.Hash.
//
// Err is set when the bridge itself failed (module unavailable, trap,
// memory fault) and always holds an *Error; match its kind with errors.Is.
// Status and Message then hold whatever was resolved before the failure.
// CleanupErr records failures releasing memory after the result was
// computed and never invalidates it.
type HashOutcome struct {
	RawHash     []byte
	EncodedHash string
	Status      Status
	Message     string
	Err         error
	CleanupErr  error
}

// OK reports whether the hash was computed.
func (o HashOutcome) OK() bool {
	return o.Err == nil && o.Status == StatusOK
}

// AsError returns the bridge error, a native error for a non-zero status, or nil.
func (o HashOutcome) AsError() error {
	return outcomeError("hash", o.Err, o.Status, o.Message)
}

// VerifyOutcome is the result of Hasher.Verify. Fields follow HashOutcome.
type VerifyOutcome struct {
	Status     Status
	Message    string
	Err        error
	CleanupErr error
}

// OK reports whether the password matched.
func (o VerifyOutcome) OK() bool {
	return o.Err == nil && o.Status == StatusOK
}

// Mismatch reports whether verification ran and the password did not match.
func (o VerifyOutcome) Mismatch() bool {
	return o.Err == nil && o.Status == StatusVerifyMismatch
}

// AsError returns the bridge error, a native error for a non-zero status, or nil.
func (o VerifyOutcome) AsError() error {
	return outcomeError("verify", o.Err, o.Status, o.Message)
}

func outcomeError(op string, err error, status Status, message string) error {
	if err != nil {
		return err
	}
	if status != StatusOK {
		return nativeError(op, status, message)
	}
	return nil
}
