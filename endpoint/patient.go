package endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erlaaaand/dentizy/apperror"
	"github.com/erlaaaand/dentizy/model"
	"github.com/erlaaaand/dentizy/patientcode"
	"github.com/erlaaaand/dentizy/store"
	"github.com/erlaaaand/dentizy/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const statisticsDateLayout = "2006-01-02"

// PatientHandler serves patient registration and code lookups.
type PatientHandler struct {
	store     store.Store
	allocator *patientcode.Allocator
	logger    *zap.Logger
}

func NewPatientHandler(s store.Store, allocator *patientcode.Allocator, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &PatientHandler{
		store:     s,
		allocator: allocator,
		logger:    logger.With(zap.String("component", "endpoint")),
	}
}

type createPatientRequest struct {
	FullName       string   `json:"full_name" example:"John Doe"`
	Gender         string   `json:"gender" example:"Male"`
	Age            int      `json:"age" example:"30"`
	Job            string   `json:"job" example:"Engineer"`
	Address        string   `json:"address" example:"123 Main St"`
	PhoneNumber    []string `json:"phone_number" example:"081234567890,081234567891"`
	HealthHistory  []string `json:"health_history" example:"Diabetes,Hypertension"`
	SurgeryHistory string   `json:"surgery_history" example:"Appendectomy 2020"`
	PatientCode    string   `json:"patient_code,omitempty" example:"20231119-001"`
	Email          string   `json:"email,omitempty" example:"john@example.com"`
}

type patientCodeResponse struct {
	Patient  *model.Patient `json:"patient"`
	IssuedOn string         `json:"issued_on"`
	Sequence int            `json:"sequence"`
}

func buildPatientModel(req createPatientRequest, patientCode string, phoneNumbers []string) *model.Patient {
	return &model.Patient{
		FullName:       req.FullName,
		Gender:         req.Gender,
		Age:            req.Age,
		Job:            req.Job,
		Address:        req.Address,
		PhoneNumber:    strings.Join(phoneNumbers, ","),
		PatientCode:    patientCode,
		HealthHistory:  strings.Join(req.HealthHistory, ","),
		SurgeryHistory: req.SurgeryHistory,
		Email:          req.Email,
	}
}

// validateCreatePatient normalizes req in place and returns its phone numbers.
func validateCreatePatient(req *createPatientRequest) ([]string, error) {
	req.FullName = util.NormalizeName(req.FullName)
	phones := util.NormalizePhoneNumbers(req.PhoneNumber)
	if req.FullName == "" || len(phones) == 0 {
		return nil, apperror.Validation("full_name and at least one phone_number are required")
	}
	req.PatientCode = strings.TrimSpace(req.PatientCode)
	if req.PatientCode != "" {
		if _, _, ok := patientcode.Parse(req.PatientCode); !ok {
			return nil, apperror.Validation("patient_code %q is not a valid YYYYMMDD-SSS code", req.PatientCode)
		}
	}
	return phones, nil
}

// registerPatient stores the patient under a requested or freshly issued code.
// Both paths hold the date lock while the duplicate check and insert run.
func (h *PatientHandler) registerPatient(ctx context.Context, req createPatientRequest, phones []string) (*model.Patient, error) {
	var patient *model.Patient
	persist := func(ctx context.Context, tx store.Tx, code string) error {
		duplicate, err := tx.HasPatientWithNameAndPhone(ctx, req.FullName, phones)
		if err != nil {
			return fmt.Errorf("check duplicate patient: %w", err)
		}
		if duplicate {
			return apperror.Conflict("patient already exists with same name and phone number")
		}
		patient = buildPatientModel(req, code, phones)
		return tx.CreatePatient(ctx, patient)
	}

	if req.PatientCode == "" {
		if _, err := h.allocator.Generate(ctx, persist); err != nil {
			return nil, err
		}
		return patient, nil
	}

	if err := h.allocator.Claim(ctx, req.PatientCode, persist); err != nil {
		return nil, err
	}
	return patient, nil
}

// CreatePatient godoc
// @Summary      Create a new patient
// @Description  Register a patient and issue a YYYYMMDD-SSS patient code
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Param        request body createPatientRequest true "Patient information"
// @Success      201 {object} util.APIResponse{data=model.Patient} "Patient created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Patient or code already exists"
// @Failure      422 {object} util.APIResponse "Daily code capacity reached"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient [post]
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	req := createPatientRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid request body",
			Err: err,
		})
		return
	}

	phones, err := validateCreatePatient(&req)
	if err != nil {
		util.CallErrorByKind(c, util.APIErrorParams{
			Msg: "Invalid patient payload",
			Err: err,
		})
		return
	}

	patient, err := h.registerPatient(c.Request.Context(), req, phones)
	if err != nil {
		_ = c.Error(err)
		util.CallErrorByKind(c, util.APIErrorParams{
			Msg: "Failed to create patient",
			Err: err,
		})
		return
	}

	util.LoggerFromContext(c.Request.Context(), h.logger).Info("patient registered",
		zap.Uint("patient_id", patient.ID),
		zap.String("patient_code", patient.PatientCode),
	)
	util.CallCreated(c, util.APISuccessParams{
		Msg:  "Patient created",
		Data: patient,
	})
}

// GetPatientByCode godoc
// @Summary      Get patient by code
// @Description  Look up a patient by the code issued at registration
// @Tags         Patient
// @Produce      json
// @Param        code path string true "Patient code (YYYYMMDD-SSS)"
// @Success      200 {object} util.APIResponse{data=patientCodeResponse} "Patient found"
// @Failure      400 {object} util.APIResponse "Malformed code"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/code/{code} [get]
func (h *PatientHandler) GetPatientByCode(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	issuedOn, sequence, ok := patientcode.Parse(code)
	if !ok {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid patient code",
			Err: apperror.Validation("patient code %q is not a valid YYYYMMDD-SSS code", code),
		})
		return
	}

	patient, err := h.store.FindPatientByCode(c.Request.Context(), code)
	if err != nil {
		_ = c.Error(err)
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Failed to retrieve patient",
			Err: fmt.Errorf("lookup failed"),
		})
		return
	}
	if patient == nil {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: "Patient not found",
			Err: apperror.NotFound("no patient with code %s", code),
		})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Patient retrieved",
		Data: patientCodeResponse{
			Patient:  patient,
			IssuedOn: issuedOn.Format(statisticsDateLayout),
			Sequence: sequence,
		},
	})
}

// GetCodeStatistics godoc
// @Summary      Daily patient code usage
// @Description  Count codes issued on a day against the daily ceiling
// @Tags         Patient
// @Produce      json
// @Param        date query string false "Day to report (YYYY-MM-DD), defaults to today"
// @Success      200 {object} util.APIResponse{data=patientcode.DailyStatistics} "Statistics retrieved"
// @Failure      400 {object} util.APIResponse "Invalid date"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient/code-statistics [get]
func (h *PatientHandler) GetCodeStatistics(c *gin.Context) {
	var date time.Time
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse(statisticsDateLayout, raw)
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Invalid date, expected YYYY-MM-DD",
				Err: err,
			})
			return
		}
		date = parsed
	}

	stats, err := h.allocator.GetDailyStatistics(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Failed to compute code statistics",
			Err: fmt.Errorf("statistics unavailable"),
		})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Statistics retrieved",
		Data: stats,
	})
}
